package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/ignatzorin/workdeal-backend/internal/logger"
)

// SafeGo запускает горутину, перехватывая panic, чтобы фоновая задача
// не роняла процесс.
func SafeGo(fn func()) {
	go func() {
		defer logPanic()
		fn()
	}()
}

// SafeGoWithContext — то же самое для функций, принимающих контекст.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer logPanic()
		fn(ctx)
	}()
}

func logPanic() {
	if r := recover(); r != nil {
		if logger.Log == nil {
			logger.Init("info")
		}
		logger.Log.WithField("panic", r).
			Errorf("panic в горутине, stack:\n%s", debug.Stack())
	}
}
