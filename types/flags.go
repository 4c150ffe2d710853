// SPDX-License-Identifier: MIT

package types

// UserFlags is the user badge bitfield.
type UserFlags uint64

const (
	UserFlagStaff            UserFlags = 1 << 0
	UserFlagPartner          UserFlags = 1 << 1
	UserFlagHypeSquad        UserFlags = 1 << 2
	UserFlagBugHunterLevel1  UserFlags = 1 << 3
	UserFlagHouseBravery     UserFlags = 1 << 6
	UserFlagHouseBrilliance  UserFlags = 1 << 7
	UserFlagHouseBalance     UserFlags = 1 << 8
	UserFlagEarlySupporter   UserFlags = 1 << 9
	UserFlagTeamUser         UserFlags = 1 << 10
	UserFlagBugHunterLevel2  UserFlags = 1 << 14
	UserFlagVerifiedBot      UserFlags = 1 << 16
	UserFlagEarlyBotDev      UserFlags = 1 << 17
	UserFlagModProgramAlumni UserFlags = 1 << 18
	UserFlagActiveDeveloper  UserFlags = 1 << 22
)

// Has reports whether every bit of other is set.
func (f UserFlags) Has(other UserFlags) bool { return f&other == other }

// MessageFlags is the message bitfield.
type MessageFlags uint64

const (
	MessageFlagCrossposted          MessageFlags = 1 << 0
	MessageFlagIsCrosspost          MessageFlags = 1 << 1
	MessageFlagSuppressEmbeds       MessageFlags = 1 << 2
	MessageFlagSourceDeleted        MessageFlags = 1 << 3
	MessageFlagUrgent               MessageFlags = 1 << 4
	MessageFlagHasThread            MessageFlags = 1 << 5
	MessageFlagEphemeral            MessageFlags = 1 << 6
	MessageFlagLoading              MessageFlags = 1 << 7
	MessageFlagSuppressNotification MessageFlags = 1 << 12
	MessageFlagVoiceMessage         MessageFlags = 1 << 13
)

// Has reports whether every bit of other is set.
func (f MessageFlags) Has(other MessageFlags) bool { return f&other == other }

// ChannelFlags is the channel bitfield.
type ChannelFlags uint64

const (
	ChannelFlagPinned     ChannelFlags = 1 << 1
	ChannelFlagRequireTag ChannelFlags = 1 << 4
)

// Has reports whether every bit of other is set.
func (f ChannelFlags) Has(other ChannelFlags) bool { return f&other == other }
