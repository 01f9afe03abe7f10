package dummydb

import (
	"sync"

	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/user"
)

type (
	DB struct {
		user         *userTable
		notification *notificationTable
		deviceToken  *deviceTokenTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	deviceTokenTable struct {
		sync.RWMutex
		table map[string]*notification.DeviceToken // keyed by token
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
		deviceToken:  &deviceTokenTable{table: make(map[string]*notification.DeviceToken)},
	}
	return db, nil
}
