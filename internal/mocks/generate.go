// Package mocks provides mock implementations of the ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockProfileRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), "u1").Return(profile, nil)
package mocks

// Generate mocks for the auth ports consumed by services and handlers:
// ProfileRepository (GetByID, Insert), ProfileFetcher (FetchProfile),
// IdentityProvider (Authenticate, Register), RateLimiter (Allow, Reset).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/fintrack/fintrack-api/internal/ports ProfileRepository,ProfileFetcher,IdentityProvider,RateLimiter
