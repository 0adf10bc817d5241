package concurrency

import (
	"sync"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
)

// MutexConfig names a mutex for diagnostics and optionally enables
// lock/unlock tracing.
type MutexConfig struct {
	Name      string
	DebugMode bool
}

// SmartMutex is a named, optionally-traced sync.Mutex. The
// ActiveContextHandle refcount does not use it; that bookkeeping is
// done with atomics.
type SmartMutex struct {
	mu     sync.Mutex
	config MutexConfig
}

func NewSmartMutex(cfg MutexConfig) *SmartMutex {
	return &SmartMutex{config: cfg}
}

func (m *SmartMutex) Lock() {
	m.mu.Lock()
	if m.config.DebugMode {
		logger.L().Debug("mutex locked", "name", m.config.Name)
	}
}

func (m *SmartMutex) Unlock() {
	if m.config.DebugMode {
		logger.L().Debug("mutex unlocked", "name", m.config.Name)
	}
	m.mu.Unlock()
}

// SmartRWMutex is the read-write counterpart of SmartMutex.
type SmartRWMutex struct {
	mu     sync.RWMutex
	config MutexConfig
}

func NewSmartRWMutex(cfg MutexConfig) *SmartRWMutex {
	return &SmartRWMutex{config: cfg}
}

func (m *SmartRWMutex) Lock() {
	m.mu.Lock()
	if m.config.DebugMode {
		logger.L().Debug("rwmutex write-locked", "name", m.config.Name)
	}
}

func (m *SmartRWMutex) Unlock() {
	if m.config.DebugMode {
		logger.L().Debug("rwmutex write-unlocked", "name", m.config.Name)
	}
	m.mu.Unlock()
}

func (m *SmartRWMutex) RLock() {
	m.mu.RLock()
	if m.config.DebugMode {
		logger.L().Debug("rwmutex read-locked", "name", m.config.Name)
	}
}

func (m *SmartRWMutex) RUnlock() {
	if m.config.DebugMode {
		logger.L().Debug("rwmutex read-unlocked", "name", m.config.Name)
	}
	m.mu.RUnlock()
}
