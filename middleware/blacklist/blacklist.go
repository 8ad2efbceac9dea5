// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package blacklist

import (
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/TheThingsNetwork/go-utils/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

type blacklistedItem struct {
	Device string `yaml:"device"`
	Reason string `yaml:"reason"`
}

// NewBlacklist returns a middleware that filters traffic from and to blacklisted devices.
// Lists are local YAML files, which are watched for changes, or http(s) URLs.
func NewBlacklist(lists ...string) (b *Blacklist, err error) {
	b = &Blacklist{
		log:    log.Get(),
		lists:  make(map[string][]blacklistedItem),
		lookup: make(map[string]bool),
	}
	b.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, location := range lists {
		if err := b.addList(location); err != nil {
			b.log.WithError(err).WithField("List", location).Warn("Could not load blacklist")
		}
	}
	b.FetchRemotes()
	go func() {
		for e := range b.watcher.Events {
			if e.Op&fsnotify.Write == fsnotify.Write {
				if err := b.read(e.Name); err != nil {
					b.log.WithError(err).WithField("List", e.Name).Warn("Could not reload blacklist")
				}
			}
		}
	}()
	return b, nil
}

// Blacklist middleware
type Blacklist struct {
	log     log.Interface
	watcher *fsnotify.Watcher
	urls    []string

	mu     sync.RWMutex
	lists  map[string][]blacklistedItem
	lookup map[string]bool
}

func (b *Blacklist) addList(location string) error {
	url, err := url.Parse(location)
	if err != nil {
		return err
	}
	switch url.Scheme {
	case "", "file":
		return b.addFile(url.Path)
	case "http", "https":
		return b.addURL(url)
	}
	return errors.New("blacklist: unknown list type")
}

func (b *Blacklist) addFile(filename string) (err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err = b.watcher.Add(filename); err != nil {
		return err
	}
	return b.read(filename)
}

func (b *Blacklist) addURL(url *url.URL) error {
	b.urls = append(b.urls, url.String())
	return nil
}

// FetchRemotes fetches remote blacklists
func (b *Blacklist) FetchRemotes() error {
	var lastErr error
	for _, url := range b.urls {
		if err := b.fetch(url); err != nil {
			b.log.WithError(err).WithField("List", url).Warn("Could not fetch blacklist")
			lastErr = err
		}
	}
	return lastErr
}

// Close the blacklist watcher
func (b *Blacklist) Close() {
	b.watcher.Close()
}

func (b *Blacklist) read(filename string) error {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	return b.update(filename, contents)
}

func (b *Blacklist) fetch(location string) error {
	resp, err := http.Get(location)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return b.update(location, body)
}

func (b *Blacklist) update(list string, contents []byte) error {
	var blacklist []blacklistedItem
	if err := yaml.Unmarshal(contents, &blacklist); err != nil {
		return err
	}
	b.mu.Lock()
	b.lists[list] = blacklist
	b.updateLookup()
	b.mu.Unlock()
	b.log.WithField("List", list).WithField("Devices", len(blacklist)).Debug("Loaded blacklist")
	return nil
}

func (b *Blacklist) updateLookup() {
	var n int
	for _, blacklist := range b.lists {
		n += len(blacklist)
	}
	b.lookup = make(map[string]bool, n)
	for _, blacklist := range b.lists {
		for _, item := range blacklist {
			address, err := translator.ParseAddress(item.Device)
			if err != nil {
				continue
			}
			b.lookup[types.FormatAddress(address)] = true
		}
	}
}

// ErrBlacklisted is returned for traffic from or to blacklisted devices
var ErrBlacklisted = errors.New("blacklist: device is blacklisted")

func (b *Blacklist) check(address []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lookup[types.FormatAddress(address)] {
		return ErrBlacklisted
	}
	return nil
}

// HandleUplink blocks packets from blacklisted devices
func (b *Blacklist) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	return b.check(packet.Address)
}

// HandleDownlink blocks transmissions to blacklisted devices
func (b *Blacklist) HandleDownlink(_ middleware.Context, req *types.TransmitRequest) error {
	return b.check(req.Address)
}
