package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the REST surface on an authenticated router group.
func RegisterRoutes(r gin.IRouter, rooms *RoomHandler, messages *MessageHandler, presence *PresenceHandler) {
	r.GET("/rooms", rooms.ListRooms)
	r.POST("/rooms/direct", rooms.CreateDirectRoom)
	r.POST("/groups", rooms.CreateGroup)

	r.GET("/rooms/:kind/:room_id/messages", messages.ListMessages)
	r.POST("/rooms/:kind/:room_id/messages", messages.PostMessage)
	r.POST("/messages/:message_id/read", messages.MarkAsRead)
	r.DELETE("/messages/:message_id", messages.DeleteMessage)

	r.GET("/presence", presence.GetPresence)
	r.GET("/presence/:user_id", presence.GetUserPresence)
}
