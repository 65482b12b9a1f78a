// Copyright 2025 MeetMesh, Inc.
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

package meshsdk

import (
	"sync"
)

// peerLinkRegistry is the single source of truth for which peer links exist.
// All create/lookup/destroy traffic goes through it; no caller keeps its own
// identity-keyed map.
type peerLinkRegistry struct {
	lock    sync.Mutex
	links   map[string]*PeerLink
	newLink func(identity, username string) (*PeerLink, error)

	// onDestroy runs outside the registry lock for every link removed,
	// letting the supervisor cancel that peer's timers.
	onDestroy func(identity string)
}

func newPeerLinkRegistry(factory func(identity, username string) (*PeerLink, error)) *peerLinkRegistry {
	return &peerLinkRegistry{
		links:   make(map[string]*PeerLink),
		newLink: factory,
	}
}

// GetOrCreate returns the link for identity, creating it lazily on first use.
func (r *peerLinkRegistry) GetOrCreate(identity, username string) (*PeerLink, bool, error) {
	r.lock.Lock()
	if link, ok := r.links[identity]; ok {
		link.setUsername(username)
		r.lock.Unlock()
		return link, false, nil
	}
	r.lock.Unlock()

	// link construction dials no network but does allocate a full session;
	// keep it outside the registry lock
	link, err := r.newLink(identity, username)
	if err != nil {
		return nil, false, err
	}

	r.lock.Lock()
	if existing, ok := r.links[identity]; ok {
		r.lock.Unlock()
		_ = link.Close()
		return existing, false, nil
	}
	r.links[identity] = link
	r.lock.Unlock()
	return link, true, nil
}

func (r *peerLinkRegistry) Get(identity string) (*PeerLink, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	link, ok := r.links[identity]
	return link, ok
}

// Destroy closes and removes the link for identity. Idempotent: destroying an
// unknown identity is a no-op.
func (r *peerLinkRegistry) Destroy(identity string) {
	r.lock.Lock()
	link, ok := r.links[identity]
	delete(r.links, identity)
	r.lock.Unlock()
	if !ok {
		return
	}
	if err := link.Close(); err != nil {
		logger().Warn().Err(err).Str("peer", identity).Msg("error closing peer link")
	}
	if r.onDestroy != nil {
		r.onDestroy(identity)
	}
}

// Replace removes any existing link for identity and installs a fresh one,
// used by full session recreation.
func (r *peerLinkRegistry) Replace(identity, username string) (*PeerLink, error) {
	r.Destroy(identity)
	link, _, err := r.GetOrCreate(identity, username)
	return link, err
}

func (r *peerLinkRegistry) DestroyAll() {
	r.lock.Lock()
	links := r.links
	r.links = make(map[string]*PeerLink)
	r.lock.Unlock()
	for identity, link := range links {
		_ = link.Close()
		if r.onDestroy != nil {
			r.onDestroy(identity)
		}
	}
}

func (r *peerLinkRegistry) Range(f func(link *PeerLink)) {
	r.lock.Lock()
	links := make([]*PeerLink, 0, len(r.links))
	for _, link := range r.links {
		links = append(links, link)
	}
	r.lock.Unlock()
	for _, link := range links {
		f(link)
	}
}

func (r *peerLinkRegistry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.links)
}
