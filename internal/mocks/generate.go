// Package mocks provides generated mocks for the docuvet port interfaces.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks.
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	extractor := mocks.NewMockExtractor(ctrl)
//	extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(result, nil)
package mocks

// Generate mock for the Extractor collaborator port from internal/core.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=extractor_mock.go github.com/docuvet/docuvet/internal/core Extractor
