// Package service provides domain services for RetroState.
//
// Domain services contain the business rules and orchestrate operations
// on domain models. They define interfaces for storage dependencies,
// allowing for dependency injection and testability.
//
// This package contains:
//
//   - StateService: UploadState, DownloadState and DownloadRange
//   - Reaper: periodic removal of expired states
//
// Services are stateless and thread-safe. All state lives behind the
// StateRepository.
package service
