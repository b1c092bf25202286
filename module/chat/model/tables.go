package model

import "PPulse/data/database"

var (
	_ database.Table = Conversation{}
	_ database.Table = Message{}
	_ database.Table = Device{}
	_ database.Table = FriendRequest{}
	_ database.Table = Friendship{}
	_ database.Table = CallRecord{}
)
