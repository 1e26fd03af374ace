package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/middleware"
)

// RegisterRoutes mounts the chat and schedule API on an authenticated group.
func RegisterRoutes(r gin.IRouter, chats *ChatHandler, schedules *ScheduleHandler, source middleware.ChatInfoSource, log *zap.Logger) {
	access := middleware.ChatAccess(source, log)
	writer := middleware.ChatAccess(source, log, middleware.BroadcastCreatorOnly())

	r.POST("/chats", chats.CreateChat)
	r.GET("/chats", chats.ListChats)
	r.GET("/chats/contacts", chats.ListContacts)

	chat := r.Group("/chats/:chat_id")
	chat.GET("", access, chats.GetChat)
	chat.PUT("/pin", access, chats.PinChat)
	chat.GET("/messages", access, chats.GetMessages)
	chat.POST("/messages", writer, chats.SendMessage)
	chat.GET("/messages/search", access, chats.SearchMessages)
	chat.GET("/messages/:message_id/status", access, chats.CheckStatus)
	chat.POST("/messages/delete", access, chats.DeleteMessages)
	chat.POST("/read", access, chats.MarkAsRead)
	chat.POST("/schedules", writer, schedules.Create)
	chat.GET("/schedules", access, schedules.List)

	r.PATCH("/schedules/:schedule_id", schedules.Update)
	r.DELETE("/schedules/:schedule_id", schedules.Cancel)
}
