package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/infra/logger"
)

// InfluxSink writes dispatch-core events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a misconfigured deployment degrades
// to no observability rather than failing startup.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) RecordTaskEvent(ev coremetrics.TaskEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_event").
		AddTag("task_id", string(ev.TaskId)).
		AddTag("task_type", ev.TaskType.String()).
		AddTag("fleet_name", ev.FleetName).
		AddTag("state", ev.State.String()).
		AddField("value", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordAuction(ev coremetrics.AuctionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("auction_event").
		AddTag("task_id", string(ev.TaskId)).
		AddTag("won", strconv.FormatBool(ev.Won)).
		AddField("proposals", ev.Proposals).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordProposal(ev coremetrics.ProposalEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("proposal_event").
		AddTag("task_id", string(ev.Proposal.Profile.TaskId)).
		AddTag("fleet_name", ev.Proposal.FleetName).
		AddTag("robot_name", ev.Proposal.RobotName).
		AddField("prev_cost", ev.Proposal.PrevCost).
		AddField("new_cost", ev.Proposal.NewCost).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_ack_event").
		AddTag("task_id", string(ev.Ack.TaskId)).
		AddTag("fleet_name", ev.Ack.FleetName).
		AddTag("success", strconv.FormatBool(ev.Ack.Success)).
		AddField("value", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordQueueDepth(active, terminal int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("queue_depth").
		AddField("active", active).
		AddField("terminal", terminal)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordPlanningFailure(ev coremetrics.PlanningFailureEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("planning_failure_event").
		AddTag("task_id", string(ev.TaskId)).
		AddTag("fleet_name", ev.FleetName).
		AddTag("kind", ev.Kind).
		AddField("value", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
