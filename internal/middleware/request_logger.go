package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handlerが500を返すときに原因を置いておくキー
const CtxErrorKey = "handler_error"

// 1リクエスト1行のアクセスログ。
// echomw.RequestID の後ろに置くとrequest_idが入る。
func RequestLogger(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.String("url", req.URL.Path),
				zap.Int("status", status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("remote_ip", c.RealIP()),
			}
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
				fields = append(fields, zap.String("request_id", rid))
			}
			if err == nil {
				if herr, ok := c.Get(CtxErrorKey).(error); ok {
					err = herr
				}
			}

			switch {
			case status >= 500:
				base.Error("request completed", append(fields, zap.Error(err))...)
			case status >= 400:
				base.Warn("request completed", fields...)
			default:
				base.Info("request completed", append(fields, zap.Int64("bytes", c.Response().Size))...)
			}
			return nil
		}
	}
}
