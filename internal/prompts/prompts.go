package prompts

import (
	"fmt"
	"os"
	"sync"
)

// DefaultTemplate is the fallback review prompt used when a task category
// carries no template of its own. {task_text} and {user_text} are substituted
// by the review pipeline.
const DefaultTemplate = `Выступи в роли строгого, но справедливого эксперта ЕГЭ по английскому языку.
Проанализируй ответ ученика на следующее задание и дай развернутую рецензию.
**Задание:** "{task_text}"
**Ответ ученика:** "{user_text}"

**Формат ответа:**
- **Общая оценка:** Краткое резюме.
- **✅ Сильные стороны:** Что получилось хорошо.
- **⚠️ Точки роста:** Что можно улучшить.
- **❌ Ошибки и рекомендации:** Конкретные примеры ошибок с исправлениями.`

// Store keeps the fallback prompt template in a plain text file so admins can
// edit it without redeploying.
type Store struct {
	path     string
	mu       sync.RWMutex
	template string
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		s.template = DefaultTemplate
		if err := os.WriteFile(path, []byte(DefaultTemplate), 0o644); err != nil {
			return nil, fmt.Errorf("write prompt file: %w", err)
		}
		return s, nil
	}
	s.template = string(data)
	return s, nil
}

func (s *Store) Template() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

func (s *Store) SetTemplate(template string) error {
	if template == "" {
		return fmt.Errorf("prompt template cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("write prompt file: %w", err)
	}
	s.template = template
	return nil
}
