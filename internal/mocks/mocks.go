// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/history"
)

// -- Browser Mock --

// MockBrowser mocks browser.Browser.
type MockBrowser struct {
	mock.Mock
}

var _ browser.Browser = (*MockBrowser)(nil)

func (m *MockBrowser) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowser) FindElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, selector, timeout)
	return args.Bool(0), args.Error(1)
}

func (m *MockBrowser) FindElements(ctx context.Context, selector string) ([]browser.ElementInfo, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.ElementInfo), args.Error(1)
}

func (m *MockBrowser) ClickElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, selector, timeout)
	return args.Bool(0), args.Error(1)
}

func (m *MockBrowser) TypeText(ctx context.Context, selector, text string, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, selector, text, timeout)
	return args.Bool(0), args.Error(1)
}

func (m *MockBrowser) Screenshot(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockBrowser) SetCookie(ctx context.Context, cookie browser.Cookie) error {
	args := m.Called(ctx, cookie)
	return args.Error(0)
}

func (m *MockBrowser) GetCookies(ctx context.Context) ([]browser.Cookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.Cookie), args.Error(1)
}

func (m *MockBrowser) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- History Sink Mock --

// MockSink mocks history.Sink.
type MockSink struct {
	mock.Mock
}

var _ history.Sink = (*MockSink)(nil)

func (m *MockSink) Append(ctx context.Context, rec history.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockSink) Query(ctx context.Context, limit int) ([]history.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]history.Record), args.Error(1)
}

func (m *MockSink) SuccessRate(ctx context.Context, days int) (history.Stats, error) {
	args := m.Called(ctx, days)
	return args.Get(0).(history.Stats), args.Error(1)
}

func (m *MockSink) Prune(ctx context.Context, keepDays int) (int, error) {
	args := m.Called(ctx, keepDays)
	return args.Int(0), args.Error(1)
}

func (m *MockSink) Close() error {
	args := m.Called()
	return args.Error(0)
}
