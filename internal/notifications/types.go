package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notification as shown to the user
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Operation names the intent a notification reports on
type Operation string

const (
	OperationConnect         Operation = "connect"
	OperationDisconnect      Operation = "disconnect"
	OperationPlaceOrder      Operation = "place_order"
	OperationCancelOrder     Operation = "cancel_order"
	OperationRefreshBalances Operation = "refresh_balances"
	OperationRefreshOrders   Operation = "refresh_orders"
	OperationAddFavorite     Operation = "add_favorite"
	OperationRemoveFavorite  Operation = "remove_favorite"
)

// Notification is one transient message about the outcome of an operation
type Notification struct {
	ID        string            `json:"id"`
	Level     Level             `json:"level"`
	Operation Operation         `json:"operation"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Time      time.Time         `json:"time"`
}

// New creates a notification stamped with a fresh id and the current time
func New(level Level, op Operation, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Operation: op,
		Message:   message,
		Time:      time.Now(),
	}
}

// Success reports a completed operation
func Success(op Operation, message string) Notification {
	return New(LevelSuccess, op, message)
}

// Info reports a neutral outcome
func Info(op Operation, message string) Notification {
	return New(LevelInfo, op, message)
}

// Failure reports a failed operation; the message is prefixed with what
// was being attempted.
func Failure(op Operation, err error) Notification {
	return New(LevelError, op, "Failed to "+op.Verb()+": "+err.Error())
}

// WithData attaches a key/value to the notification payload
func (n Notification) WithData(key, value string) Notification {
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[key] = value
	n.Data = data
	return n
}

// Verb is the human phrase for the operation
func (o Operation) Verb() string {
	switch o {
	case OperationConnect:
		return "connect"
	case OperationDisconnect:
		return "disconnect"
	case OperationPlaceOrder:
		return "place order"
	case OperationCancelOrder:
		return "cancel order"
	case OperationRefreshBalances:
		return "refresh balances"
	case OperationRefreshOrders:
		return "refresh orders"
	case OperationAddFavorite:
		return "add favorite"
	case OperationRemoveFavorite:
		return "remove favorite"
	default:
		return string(o)
	}
}
