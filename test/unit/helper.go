package unit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelper HTTP处理器测试辅助
type TestHelper struct {
	t *testing.T
}

// NewTestHelper 创建测试辅助实例
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// SetupTestGin 测试模式的空Gin引擎
func (h *TestHelper) SetupTestGin() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// MakeRequest 创建请求，body非nil时编码为JSON；string类型原样发送
func (h *TestHelper) MakeRequest(method, url string, body interface{}) *http.Request {
	var reqBody []byte
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = []byte(b)
	default:
		var err error
		reqBody, err = json.Marshal(body)
		require.NoError(h.t, err, "Failed to marshal request body")
	}

	req, err := http.NewRequest(method, url, bytes.NewBuffer(reqBody))
	require.NoError(h.t, err, "Failed to create request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// ExecuteRequest 执行请求
func (h *TestHelper) ExecuteRequest(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Do 创建并执行请求
func (h *TestHelper) Do(r http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	return h.ExecuteRequest(r, h.MakeRequest(method, url, body))
}

// DecodeJSON 解析响应体为map
func (h *TestHelper) DecodeJSON(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &out), "Response body should be valid JSON: %s", w.Body.String())
	return out
}

// AssertStatusCode 断言状态码，失败时输出响应体
func (h *TestHelper) AssertStatusCode(w *httptest.ResponseRecorder, expectedCode int) {
	assert.Equal(h.t, expectedCode, w.Code, "Response code should match, body: %s", w.Body.String())
}

// AssertError 断言错误响应的状态码和错误码
func (h *TestHelper) AssertError(w *httptest.ResponseRecorder, expectedCode int, errorCode string) {
	h.AssertStatusCode(w, expectedCode)
	body := h.DecodeJSON(w)
	assert.Equal(h.t, false, body["success"])
	if errorCode != "" {
		assert.Equal(h.t, errorCode, body["code"])
	}
}
