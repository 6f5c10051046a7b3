package service

import (
	"sync"
)

const sseClientBuffer = 64

func NewSSEClientMap[T any]() *SSEClientMap[T] {
	return &SSEClientMap[T]{
		clients: make(map[string]chan T),
	}
}

type SSEClientMap[T any] struct {
	m       sync.Mutex
	clients map[string]chan T
}

func (cm *SSEClientMap[T]) AddClient(uid string) chan T {
	cm.m.Lock()
	defer cm.m.Unlock()
	ch := make(chan T, sseClientBuffer)
	cm.clients[uid] = ch
	return ch
}

func (cm *SSEClientMap[T]) RemoveClient(uid string) {
	cm.m.Lock()
	defer cm.m.Unlock()
	if ch, ok := cm.clients[uid]; ok {
		close(ch)
		delete(cm.clients, uid)
	}
}

// SendToClients drops the message for clients whose buffer is full rather
// than stalling the build that produced it.
func (cm *SSEClientMap[T]) SendToClients(message T) {
	cm.m.Lock()
	defer cm.m.Unlock()
	for _, ch := range cm.clients {
		select {
		case ch <- message:
		default:
		}
	}
}

func (cm *SSEClientMap[T]) Len() int {
	cm.m.Lock()
	defer cm.m.Unlock()
	return len(cm.clients)
}
