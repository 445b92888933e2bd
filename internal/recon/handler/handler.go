package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Handlers reconciliation handlers
type Handlers struct {
	Submission *SubmissionHandler
	Batch      *BatchHandler
	Settlement *SettlementHandler
	Gateway    *GatewayHandler
	SSE        *SSEHandler
}

func NewHandlers(svc *service.Services, sse *SSEHandler, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Submission: &SubmissionHandler{svc: svc.Submission, export: svc.Export, logger: logger},
		Batch:      &BatchHandler{svc: svc.Batch, export: svc.Export, logger: logger},
		Settlement: &SettlementHandler{svc: svc.Settlement, export: svc.Export, logger: logger},
		Gateway:    &GatewayHandler{svc: svc.Settlement, logger: logger.Named("gateway")},
		SSE:        sse,
	}
}

// === response helpers ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func List(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// error codes for workflow rejections
var kindCodes = map[workflow.Kind]int{
	workflow.KindInvalidTransition:      40010,
	workflow.KindTerminalStateViolation: 40011,
	workflow.KindAmountStatusConflict:   40012,
	workflow.KindMissingJustification:   40013,
	workflow.KindInvalidAmount:          40014,
	workflow.KindSignatureMismatch:      40015,
	workflow.KindNotFound:               40400,
	workflow.KindUnknownTransaction:     40401,
	workflow.KindConcurrentModification: 40900,
	workflow.KindDuplicateConfirmation:  40901,
}

// HandleError renders any service error; unknown errors are logged and hidden.
func HandleError(c *gin.Context, logger *zap.Logger, err error) {
	if kind := workflow.KindOf(err); kind != 0 {
		Error(c, kindCodes[kind], err.Error())
		return
	}
	if errors.Is(err, service.ErrDuplicateOrder) {
		Error(c, 40902, err.Error())
		return
	}
	if errors.Is(err, service.ErrInvalidInput) {
		BadRequest(c, err.Error())
		return
	}
	logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	InternalError(c, "internal error")
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetActor(c *gin.Context) service.Actor {
	return service.Actor{ID: GetUserID(c), Name: c.GetString("user_name")}
}

// MaxPage deepest page a list request may ask for
const MaxPage = 10000

// GetPagination reads page and page_size (or limit); page_size defaults to 20, max 100
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if page > MaxPage {
		page = MaxPage
	}

	ps := c.Query("page_size")
	if ps == "" {
		ps = c.Query("limit")
	}
	if ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// queryFilters copies the listed query parameters that are present
func queryFilters(c *gin.Context, keys ...string) map[string]string {
	filters := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			filters[k] = v
		}
	}
	return filters
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// === export download ===

const spreadsheetType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeExport(c *gin.Context, exp *service.Export) {
	filename := exp.Filename
	if custom := strings.TrimSpace(c.Query("filename")); custom != "" {
		filename = custom
		if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
			filename += ".xlsx"
		}
	}
	c.Header("Content-Disposition", contentDisposition(filename))
	c.Header("Content-Transfer-Encoding", "binary")
	c.Data(200, spreadsheetType, exp.Data)
}

// contentDisposition sets both the plain and the RFC 5987 filename so every
// client can recover the name.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiFilename(filename), encodeRFC5987(filename))
}

// foldDiacritics builds a fresh chain per call; transformers carry state.
func foldDiacritics() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Map(func(r rune) rune {
			switch r {
			case 'đ':
				return 'd'
			case 'Đ':
				return 'D'
			}
			return r
		}),
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
}

// asciiFilename folds Vietnamese diacritics and replaces anything unsafe
// inside a quoted header value.
func asciiFilename(name string) string {
	folded, _, err := transform.String(foldDiacritics(), name)
	if err != nil {
		folded = name
	}
	var sb strings.Builder
	for _, r := range folded {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			sb.WriteByte('_')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isAttrChar(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0x0f])
	}
	return sb.String()
}

func isAttrChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", b) >= 0
}
