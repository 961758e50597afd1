package disruptor

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Logger is the structured logger accepted by every component. A nil
// *Logger disables logging.
type Logger = logiface.Logger[logiface.Event]

// failureLogRates bounds how often a single processor reports handler
// failures at error level. Suppressed failures are still counted and passed
// to any failure hook.
var failureLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

var failureLogLimiter = catrate.NewLimiter(failureLogRates)
