package errors

import "sync"

var (
	defaultHandler *ErrorHandler
	once           sync.Once
)

func GetDefaultHandler() *ErrorHandler {
	once.Do(func() {
		defaultHandler = NewErrorHandler()
	})
	return defaultHandler
}

func HandleError(err error) {
	GetDefaultHandler().Handle(err)
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	defaultHandler = nil
	once = sync.Once{}
}
