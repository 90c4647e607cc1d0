// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package types contains the interfaces that define the major functional
// blocks of the pipeline runtime: the three operator capability sets and
// the small composable contracts they share. The goal of placing these
// into one package is the same as upstream's: make it easy to compose
// functionality as the set of sources, transforms, and sinks grows.
package types

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/lyteabovenyte/rde/internal/message"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

// Named is implemented by every operator. The name is stable identity used
// in logs and in edge descriptions.
type Named interface {
	Name() string
}

// SchemaProvider is implemented by every operator that has a notion of
// output schema, which may change over the life of the operator (see
// internal/schema for how it evolves).
type SchemaProvider interface {
	Schema() *arrow.Schema
}

// Operator is the common surface shared by Source, Transform, and Sink.
type Operator interface {
	Named
	SchemaProvider
}

// A Source produces a Message stream onto out. It must send exactly one
// message.Eos before returning, unless it is cancelled before producing any
// output, per the cooperative-cancellation contract in internal/stopper.
type Source interface {
	Operator
	Run(ctx context.Context, out chan<- message.Message, stop *stopper.Context) error
}

// A Transform consumes Messages from in and produces zero or more onto out,
// forwarding or originating its own message.Eos when in closes or delivers
// one.
type Transform interface {
	Operator
	Run(ctx context.Context, in <-chan message.Message, out chan<- message.Message, stop *stopper.Context) error
}

// A Sink consumes a Message stream from in until message.Eos or channel
// closure, committing whatever side effects its implementation requires.
type Sink interface {
	Operator
	Run(ctx context.Context, in <-chan message.Message, stop *stopper.Context) error
}
