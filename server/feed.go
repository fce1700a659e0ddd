package server

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeVersion = "2.0"

// assembleFeed wraps entity snapshots into a FeedMessage stamped at assembly
// time.
func assembleFeed(entities ...[]*gtfsrtpb.FeedEntity) *gtfsrtpb.FeedMessage {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(time.Now().Unix())),
		},
	}
	for _, batch := range entities {
		feed.Entity = append(feed.Entity, batch...)
	}
	return feed
}

func marshalFeed(feed *gtfsrtpb.FeedMessage) ([]byte, error) {
	return proto.Marshal(feed)
}

func marshalFeedJSON(feed *gtfsrtpb.FeedMessage) ([]byte, error) {
	return protojson.MarshalOptions{}.Marshal(feed)
}
