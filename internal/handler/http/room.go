package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/service"
)

// RoomHandler 封装了与房间相关的 REST 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// JoinRoomRequest 定义加入/创建房间请求的结构体。
// roomId 可选: 缺省或未知时创建新房间。短码为 6-8 位字母数字。
type JoinRoomRequest struct {
	RoomID   string `json:"roomId" binding:"omitempty,alphanum,min=6,max=8"`
	Username string `json:"username"`
}

// JoinRoomResponse 定义加入/创建房间成功的响应结构体
type JoinRoomResponse struct {
	RoomID string          `json:"roomId"`
	Users  []domain.Member `json:"users"`
}

// JoinRoom 处理 POST /api/rooms/join。
// 房间不存在时创建；不修改成员列表 (成员关系通过 WebSocket 建立)。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomId must be 6-8 alphanumeric characters")
		return
	}
	logCtx := logrus.WithField("room_code", req.RoomID)

	room, err := h.roomService.JoinOrCreate(c.Request.Context(), req.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoomCode) {
			ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomId must be 6-8 alphanumeric characters")
			return
		}
		logCtx.WithError(err).Error("Handler.JoinRoom: failed to join or create room")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to join room")
		return
	}

	logCtx.WithField("room_code", room.Code).Info("Handler.JoinRoom: room resolved")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{
		RoomID: room.Code,
		Users:  room.UsersList(),
	})
}

// RoomInfoResponse 定义房间信息查询的响应结构体
type RoomInfoResponse struct {
	Users       []domain.Member  `json:"users"`
	DrawingData domain.StrokeLog `json:"drawingData"`
}

// RoomInfo 处理 GET /api/rooms/:roomId。
// 只读查询 —— 房间不存在时返回 404，绝不创建。
func (h *RoomHandler) RoomInfo(c *gin.Context) {
	code := c.Param("roomId")
	logCtx := logrus.WithField("room_code", code)

	room, err := h.roomService.Info(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Room not found")
			return
		}
		logCtx.WithError(err).Error("Handler.RoomInfo: failed to get room info")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get room info")
		return
	}

	strokes := room.Strokes
	if strokes == nil {
		strokes = make(domain.StrokeLog, 0)
	}
	SuccessResponse(c, http.StatusOK, RoomInfoResponse{
		Users:       room.UsersList(),
		DrawingData: strokes,
	})
}
