package battle

import (
	"fmt"
	"time"
)

// PartitionKey addresses one ledger partition: the run records and the
// subscription entries of a clan for one clan month.
type PartitionKey struct {
	GroupID int64
	ClanID  int64
	Year    int
	Month   time.Month
}

// NewPartitionKey derives the partition a timestamp falls into.
func NewPartitionKey(groupID, clanID int64, at time.Time, utcOffsetHours int) PartitionKey {
	d := ClanDateOf(at, utcOffsetHours)
	return PartitionKey{GroupID: groupID, ClanID: clanID, Year: d.Year, Month: d.Month}
}

// RunTable is the storage name of the partition's run records.
func (k PartitionKey) RunTable() string {
	return fmt.Sprintf("clanbattle_%d_%d_%04d%02d", k.GroupID, k.ClanID, k.Year, int(k.Month))
}

// SubscribeTable is the storage name of the partition's subscription entries.
func (k PartitionKey) SubscribeTable() string {
	return fmt.Sprintf("subscribe_%d_%d_%04d%02d", k.GroupID, k.ClanID, k.Year, int(k.Month))
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%d/%d/%04d-%02d", k.GroupID, k.ClanID, k.Year, int(k.Month))
}
