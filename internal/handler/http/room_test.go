package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Purabsingla/whiteboard/internal/domain"
	handler "github.com/Purabsingla/whiteboard/internal/handler/http"
	"github.com/Purabsingla/whiteboard/internal/repository"
	"github.com/Purabsingla/whiteboard/internal/repository/mocks"
	"github.com/Purabsingla/whiteboard/internal/service"
)

func setupRouter(mockRepo *mocks.RoomRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	roomService := service.NewRoomService(mockRepo, service.NewRoomLocker())
	h := handler.NewRoomHandler(roomService)

	router := gin.New()
	router.POST("/api/rooms/join", h.JoinRoom)
	router.GET("/api/rooms/:roomId", h.RoomInfo)
	return router
}

func TestJoinRoomEndpoint_CreatesRoom(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	router := setupRouter(mockRepo)

	mockRepo.On("FindByCode", mock.Anything, "ABCD1234").Return(nil, repository.ErrRoomNotFound)
	mockRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	body, _ := json.Marshal(map[string]string{"roomId": "ABCD1234", "username": "Ava"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.JoinRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ABCD1234", resp.RoomID)
	assert.Empty(t, resp.Users, "REST 加入不建立成员关系")
}

func TestJoinRoomEndpoint_EmptyCodeGeneratesOne(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	router := setupRouter(mockRepo)

	mockRepo.On("IsCodeExists", mock.Anything, mock.Anything).Return(false, nil)
	mockRepo.On("FindByCode", mock.Anything, mock.Anything).Return(nil, repository.ErrRoomNotFound)
	mockRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBufferString(`{"username":"Ava"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.JoinRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.RoomID, 8)
}

func TestJoinRoomEndpoint_InvalidCodeRejected(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	router := setupRouter(mockRepo)

	// 短码必须是 6-8 位字母数字
	cases := []string{`{"roomId":"ab"}`, `{"roomId":"toolongcode99"}`, `{"roomId":"bad-code"}`}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/rooms/join", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
	mockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRoomInfoEndpoint_ReturnsUsersAndHistory(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	router := setupRouter(mockRepo)

	room := domain.NewRoom("ABCD1234")
	room.AddMember("conn-a", "Ava")
	room.AppendStroke(domain.Stroke{OwnerID: "conn-a", Kind: "stroke"})
	mockRepo.On("FindByCode", mock.Anything, "ABCD1234").Return(room, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/rooms/ABCD1234", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.RoomInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "Ava", resp.Users[0].Name)
	assert.Len(t, resp.DrawingData, 1)
}

func TestRoomInfoEndpoint_UnknownRoomIs404(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	router := setupRouter(mockRepo)

	mockRepo.On("FindByCode", mock.Anything, "GHOST123").Return(nil, repository.ErrRoomNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/rooms/GHOST123", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	// 查询路径绝不创建房间
	mockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
