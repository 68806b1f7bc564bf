package tasks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(srv.URL, 5*time.Second, testLogger())
}

func TestCategories(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get_titles", r.URL.Query().Get("action"))
		w.Write([]byte(`{"status":"success","titles":["Монолог","Диалог"]}`))
	})

	categories, err := p.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Монолог", "Диалог"}, categories)
}

func TestCategoriesErrorStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error"}`))
	})

	_, err := p.Categories(context.Background())
	assert.Error(t, err)
}

func TestRandomTask(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "get_task_from_sheet", q.Get("action"))
		assert.Equal(t, "Монолог", q.Get("sheet"))
		w.Write([]byte(`{
			"status": "success",
			"prompt": "Оцени ответ: {task_text} / {user_text}",
			"task_data": {
				"id": "M-17",
				"task_text": "Опишите фотографию",
				"time_limit": "90",
				"image1": "https://img.example/1.jpg",
				"image2": ""
			}
		}`))
	})

	prompt, task, err := p.RandomTask(context.Background(), "Монолог")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Оцени ответ: {task_text} / {user_text}", prompt)
	assert.Equal(t, "M-17", task.ID)
	assert.Equal(t, "Опишите фотографию", task.Text)
	assert.Equal(t, 90, task.TimeLimit)
	assert.Equal(t, "https://img.example/1.jpg", task.Image1)
	assert.Empty(t, task.Image2)
}

func TestRandomTaskEmptyCategory(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"sheet is empty"}`))
	})

	prompt, task, err := p.RandomTask(context.Background(), "Пустая")
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.Empty(t, prompt)
}

func TestTaskByIDNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "get_task_by_id", q.Get("action"))
		assert.Equal(t, "X-99", q.Get("id"))
		w.Write([]byte(`{"status":"success","task_data":null}`))
	})

	_, task, err := p.TaskByID(context.Background(), "X-99")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestTaskTimeLimitParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"90", 90},
		{"60.0", 60},
		{"", 0},
		{"not a number", 0},
		{"-5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"success","prompt":"p","task_data":{"id":"1","task_text":"t","time_limit":"` + tt.raw + `"}}`))
			})
			_, task, err := p.TaskByID(context.Background(), "1")
			require.NoError(t, err)
			require.NotNil(t, task)
			assert.Equal(t, tt.want, task.TimeLimit)
		})
	}
}

func TestProviderHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, _, err := p.RandomTask(context.Background(), "Монолог")
	assert.Error(t, err)
}
