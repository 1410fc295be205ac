// Package types provides core type definitions and interfaces for the
// multitopic library.
//
// This package contains shared types that are used across multiple packages
// in the library. By keeping these types in a separate package, we avoid
// import cycles between the main multitopic package and its internal
// implementations.
//
// Key types:
//   - Message / MessageID: the unit of consumption and its position
//   - TopicName / CompleteTopicName: logical and partition-qualified topics
//   - ChildConsumer: the per-topic consumer contract the core fans in over
//   - LookupService: broker metadata queries (partition counts, pattern topics)
//   - ConnectionState: consumer lifecycle state
//   - Logger: structured logging interface
//   - MetricsCollector: metrics recording interface
package types
