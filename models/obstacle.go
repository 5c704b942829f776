package models

import (
	"sync"

	"github.com/aukilabs/teiwaz/geometry"
)

// Obstacle is a view-plane rectangle a new tag placement must avoid. The ID
// is an opaque source identity (element or tag id) used only for exclusion
// filtering, never for geometry.
type Obstacle struct {
	ID     string
	Bounds geometry.Rect
}

// ObstacleProvider yields the currently visible blocking geometry and tags
// of the target view.
type ObstacleProvider interface {
	VisibleObstacles() []Obstacle
}

// ObstacleStore holds the obstacle snapshot uploaded for one placement run.
type ObstacleStore struct {
	initOnce  sync.Once
	mutex     sync.RWMutex
	obstacles map[string]Obstacle
}

func (s *ObstacleStore) init() {
	s.obstacles = make(map[string]Obstacle)
}

func (s *ObstacleStore) Set(o Obstacle) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.obstacles[o.ID] = o
}

func (s *ObstacleStore) Remove(id string) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.obstacles, id)
}

// Replace swaps the whole snapshot, dropping any previous content.
func (s *ObstacleStore) Replace(obstacles []Obstacle) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.obstacles = make(map[string]Obstacle, len(obstacles))
	for _, o := range obstacles {
		s.obstacles[o.ID] = o
	}
}

func (s *ObstacleStore) Count() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.obstacles)
}

func (s *ObstacleStore) VisibleObstacles() []Obstacle {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	obstacles := make([]Obstacle, 0, len(s.obstacles))
	for _, o := range s.obstacles {
		obstacles = append(obstacles, o)
	}
	return obstacles
}
