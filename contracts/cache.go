package contracts

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cache keeps parsed artifacts keyed by path; parsing the ABI of a large
// contract is not free and scenarios share the same artifact.
type Cache struct {
	lru *lru.Cache
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Load returns the cached artifact for path, reading it on a miss.
func (c *Cache) Load(path string) (*Artifact, error) {
	if v, ok := c.lru.Get(path); ok {
		return v.(*Artifact), nil
	}
	art, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	c.lru.Add(path, art)
	return art, nil
}

func (c *Cache) Len() int { return c.lru.Len() }
