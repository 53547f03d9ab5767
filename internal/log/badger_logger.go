package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// BadgerAdapter адаптирует slog.Logger под интерфейс badger.Logger.
type BadgerAdapter struct {
	Logger *slog.Logger
}

// Errorf реализует метод интерфейса badger.Logger.
func (a *BadgerAdapter) Errorf(format string, v ...interface{}) {
	a.Logger.Error(trimf(format, v...))
}

// Warningf реализует метод интерфейса badger.Logger.
func (a *BadgerAdapter) Warningf(format string, v ...interface{}) {
	a.Logger.Warn(trimf(format, v...))
}

// Infof реализует метод интерфейса badger.Logger.
func (a *BadgerAdapter) Infof(format string, v ...interface{}) {
	a.Logger.Info(trimf(format, v...))
}

// Debugf реализует метод интерфейса badger.Logger.
func (a *BadgerAdapter) Debugf(format string, v ...interface{}) {
	a.Logger.Debug(trimf(format, v...))
}

// badger заканчивает сообщения переводом строки
func trimf(format string, v ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}
