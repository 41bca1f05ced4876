package connect

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/roomcast/roomcast/config"
	"github.com/roomcast/roomcast/pkg/response"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// Handler serves QR codes that get phones onto the room: the join URL and,
// when configured, the Wi-Fi credentials.
type Handler struct {
	joinURL string
	wifi    config.WiFiConfig
	logger  *zap.Logger
}

// NewHandler creates the connect handler.
func NewHandler(joinURL string, wifi config.WiFiConfig, logger *zap.Logger) *Handler {
	return &Handler{joinURL: joinURL, wifi: wifi, logger: logger}
}

// JoinQR returns a PNG QR code of the join URL. Optional ?size= pixels.
func (h *Handler) JoinQR(c *gin.Context) {
	h.writePNG(c, h.joinURL)
}

// WiFiQR returns a PNG QR code of the Wi-Fi credential string.
func (h *Handler) WiFiQR(c *gin.Context) {
	if h.wifi.SSID == "" {
		response.NotFound(c, "wifi credentials not configured")
		return
	}
	h.writePNG(c, FormatWiFi(h.wifi.SSID, h.wifi.Password, h.wifi.Security))
}

func (h *Handler) writePNG(c *gin.Context, content string) {
	size := defaultQRSize
	if v := c.Query("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxQRSize {
			size = n
		}
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		h.logger.Error("qr encode failed", zap.Error(err))
		response.Internal(c, "could not generate qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
