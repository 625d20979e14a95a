// Copyright 2026 The Yggmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/driver"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

// ResponseConfig describes a response driver.
type ResponseConfig struct {
	// ResponseAddress is where the client waits for the response.
	ResponseAddress string

	// MsgID identifies the request answered.  Defaults to a fresh UUID.
	MsgID string

	// RequestName, if set, prefixes the name of the driver.
	RequestName string

	// Protocol and Host make the address the server model sends the
	// response to.  See address.New for the defaults.
	Protocol address.Protocol
	Host     string

	// Timeout bounds the waits of the driver.  See driver.Config.
	Timeout time.Duration

	// Metrics, if set, counts the response.
	Metrics *driver.Metrics

	// Registry defaults to registry.Default().
	Registry *registry.Registry

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Response forwards one response of the server model to a client.
type Response struct {
	*driver.Driver
	msgID string
}

// ResponseName returns the name of a response driver.
func ResponseName(requestName, msgID string) string {
	name := "ServerResponse." + msgID
	if requestName != "" {
		name = requestName + "." + name
	}
	return name
}

// NewServerResponse creates a response driver.  Its input is a new comm
// the server model sends its response to; its output sends that response
// on to the client.  The driver stops after one message.
func NewServerResponse(cfg ResponseConfig) (*Response, error) {
	if cfg.MsgID == "" {
		cfg.MsgID = uuid.New().String()
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	name := ResponseName(cfg.RequestName, cfg.MsgID)
	d, err := driver.New(driver.Config{
		Name: name,
		NewInput: func() (yggmq.Comm, error) {
			return sockcomm.New(sockcomm.Config{
				Name:     "server_model_response." + cfg.MsgID,
				Protocol: cfg.Protocol,
				Host:     cfg.Host,
				Pattern:  sockcomm.Pull,
				Action:   sockcomm.ActionBind,
				Registry: cfg.Registry,
				Logger:   cfg.Logger,
			})
		},
		NewOutput: func() (yggmq.Comm, error) {
			return sockcomm.New(sockcomm.Config{
				Name:     name,
				Address:  cfg.ResponseAddress,
				Pattern:  sockcomm.Push,
				Action:   sockcomm.ActionConnect,
				Registry: cfg.Registry,
				Logger:   cfg.Logger,
			})
		},
		SingleUse: true,
		Timeout:   cfg.Timeout,
		Metrics:   cfg.Metrics,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Response{Driver: d, msgID: cfg.MsgID}, nil
}

// MsgID returns the identifier of the request answered.
func (r *Response) MsgID() string { return r.msgID }

// ModelResponseName returns the name of the comm the server model sends
// its response on.
func (r *Response) ModelResponseName() string { return r.Input().Name() }

// ModelResponseAddress returns the address the server model sends its
// response to.
func (r *Response) ModelResponseAddress() string { return r.Input().Address() }

// ResponseAddress returns the address the response is sent on to.
func (r *Response) ResponseAddress() string { return r.Output().Address() }

// ModelConfig returns the configuration of the comm the server model
// sends its response on.
func (r *Response) ModelConfig() sockcomm.Config {
	cfg := r.Input().(*sockcomm.Comm).MateConfig()
	cfg.Action = sockcomm.ActionConnect
	return cfg
}
