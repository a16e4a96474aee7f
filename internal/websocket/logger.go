package websocket

import (
	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *zap.Logger
}

func NewWebSocketLogger(log *logger.Logger) *WebSocketLogger {
	if log == nil {
		log = logger.NewNop()
	}
	return &WebSocketLogger{logger: log.Named("websocket").Logger}
}

// Info logs info level event
func (l *WebSocketLogger) Info(event, userID, clientID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, userID, clientID, fields)...)
}

// Warn logs warning level event
func (l *WebSocketLogger) Warn(event, userID, clientID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, userID, clientID, fields)...)
}

// Error logs error level event
func (l *WebSocketLogger) Error(event, userID, clientID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, userID, clientID, append(fields, zap.Error(err)))...)
}

func (l *WebSocketLogger) fields(event, userID, clientID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.String("client_id", clientID),
	}, extra...)
}
