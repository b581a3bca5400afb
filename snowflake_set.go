package concord

import "pkg.mon.icu/concord/model"

// snowflakeSet is a simple map-based set of unique identifiers.
type snowflakeSet struct {
	backingMap map[model.Snowflake]struct{}
}

func newSnowflakeSet(ids []model.Snowflake) *snowflakeSet {
	set := &snowflakeSet{make(map[model.Snowflake]struct{}, len(ids))}
	for _, id := range ids {
		set.backingMap[id] = struct{}{}
	}
	return set
}

func (s *snowflakeSet) Contains(id model.Snowflake) bool {
	_, exists := s.backingMap[id]
	return exists
}

func (s *snowflakeSet) Empty() bool {
	return len(s.backingMap) == 0
}

func (s *snowflakeSet) Values() []model.Snowflake {
	v := make([]model.Snowflake, 0, len(s.backingMap))
	for id := range s.backingMap {
		v = append(v, id)
	}
	return v
}
