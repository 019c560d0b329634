// Package mocks provides gomock implementations of the service ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	src := mocks.NewMockProfileSource(ctrl)
//	src.EXPECT().GetProfile(gomock.Any(), "user-1").Return(access.ProfileRecord{}, nil)
package mocks

// Generate mock for ProfileSource interface from internal/ports package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_source_mock.go github.com/target/portal-access/internal/ports ProfileSource

// Generate mock for SessionStore interface from internal/ports package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/portal-access/internal/ports SessionStore
