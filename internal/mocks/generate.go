// Package mocks provides generated mocks for the ports in internal/core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// Regenerate after changing an interface:
//
//	go generate ./internal/mocks/...
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/pushgate/internal/core CacheRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=endpoint_repository_mock.go github.com/target/pushgate/internal/core EndpointRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=push_log_repository_mock.go github.com/target/pushgate/internal/core PushLogRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=group_repository_mock.go github.com/target/pushgate/internal/core GroupRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=push_queue_mock.go github.com/target/pushgate/internal/core PushQueue

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=push_queue_consumer_mock.go github.com/target/pushgate/internal/core PushQueueConsumer
