package telegram

import (
	"sync"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingVoice
	StateAwaitingPaymentCheck
	StateAwaitingTaskID

	// Admin states share the same session slot: entering one implicitly
	// leaves any user-facing state.
	StateAwaitingNewPrice
	StateAwaitingAdminAdd
	StateAwaitingAdminRemove
)

// Session is the per-user conversational state plus the context of the
// current task or payment attempt. Ephemeral; lost on restart.
type Session struct {
	State          SessionState
	TaskText       string
	PromptTemplate string
	TimeLimit      int
	InvoiceID      int64
	TariffToEdit   models.Tariff
}

type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

func (m *StateManager) Get(chatID int64) *Session {
	m.mu.RLock()
	session, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if ok {
		return session
	}
	return &Session{State: StateIdle}
}

func (m *StateManager) Set(chatID int64, session *Session) {
	m.mu.Lock()
	m.sessions[chatID] = session
	m.mu.Unlock()
}

// Reset returns the user to the idle rest state and drops all stored context.
func (m *StateManager) Reset(chatID int64) {
	m.Set(chatID, &Session{State: StateIdle})
}
