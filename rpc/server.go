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

// Package rpc composes comms, drivers and a proxy into request and
// response channels between client models and a server model.
//
// Clients send requests on DEALER comms to the client address of a
// Server.  Its proxy pushes them to the server model, which pulls from
// the server address.  For each request the server answers, a single use
// response driver carries the answer back to the response address the
// client waits on.
package rpc

import (
	"time"

	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/proxy"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

// ServerConfig describes a Server.
type ServerConfig struct {
	// Name prefixes the comms of the server.  Default "server".
	Name string

	// Address is where the server model receives requests.  If empty, a
	// new tcp address is used.
	Address string

	// ClientProtocol and ClientHost make the address clients send to.
	ClientProtocol address.Protocol
	ClientHost     string

	// Registry defaults to registry.Default().
	Registry *registry.Registry

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Server routes the requests of many clients to one server model.
type Server struct {
	name  string
	proxy *proxy.Proxy
	reg   *registry.Registry
	log   *zap.Logger
}

// NewServer creates the proxy of a server and starts it.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "server"
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p, err := proxy.New(proxy.Config{
		ServerAddress:  cfg.Address,
		ClientProtocol: cfg.ClientProtocol,
		ClientHost:     cfg.ClientHost,
		Registry:       cfg.Registry,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err = p.Start(); err != nil {
		p.Stop(0)
		return nil, err
	}
	s := &Server{
		name:  cfg.Name,
		proxy: p,
		reg:   cfg.Registry,
		log:   cfg.Logger.Named("rpc").With(zap.String("name", cfg.Name)),
	}
	s.log.Debug("server started",
		zap.String("client_address", p.ClientAddress()),
		zap.String("address", p.ServerAddress()))
	return s, nil
}

// Name returns the name of the server.
func (s *Server) Name() string { return s.name }

// Address returns where the server model receives requests.
func (s *Server) Address() string { return s.proxy.ServerAddress() }

// ClientAddress returns where clients send requests.
func (s *Server) ClientAddress() string { return s.proxy.ClientAddress() }

// Forwarded returns the number of requests routed so far.
func (s *Server) Forwarded() int64 { return s.proxy.Forwarded() }

// ClientConfig returns the configuration of a comm sending requests to
// the server.
func (s *Server) ClientConfig(name string) sockcomm.Config {
	if name == "" {
		name = s.name + ".client"
	}
	return sockcomm.Config{
		Name:      name,
		Address:   s.ClientAddress(),
		Pattern:   sockcomm.Dealer,
		Direction: yggmq.Send,
		Action:    sockcomm.ActionConnect,
		Registry:  s.reg,
		Logger:    s.log,
	}
}

// ServerConfig returns the configuration of the comm the server model
// receives requests on.
func (s *Server) ServerConfig(name string) sockcomm.Config {
	if name == "" {
		name = s.name + ".requests"
	}
	return sockcomm.Config{
		Name:     name,
		Address:  s.Address(),
		Pattern:  sockcomm.Pull,
		Action:   sockcomm.ActionConnect,
		Registry: s.reg,
		Logger:   s.log,
	}
}

// Stop stops the proxy, waiting up to timeout for it.
func (s *Server) Stop(timeout time.Duration) error {
	err := s.proxy.Stop(timeout)
	s.log.Debug("server stopped", zap.Int64("forwarded", s.Forwarded()))
	return err
}
