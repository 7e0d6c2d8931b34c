// Command spid_logger records every controller status update in InfluxDB.
//
// Each update is written as one "spid.axis" point per fitted axis, tagged
// with the axis name, and one "spid.controller" point.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/spid"
)

var (
	org    = flag.String("org", "w1xm", "InfluxDB organization")
	bucket = flag.String("bucket", "spid.raw", "InfluxDB bucket")
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()
	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	url := getenv("SPID_ADDRESS", "ws://localhost:8502/api/ws")
	for {
		if err := logData(writeApi, url); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// sample is one measurement derived from a status update.
type sample struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
}

func axisSample(a rotator.Axis, st spid.AxisStatus) sample {
	return sample{
		measurement: "spid.axis",
		tags:        map[string]string{"axis": a.String()},
		fields: map[string]interface{}{
			"position":  st.Position,
			"target":    st.Target,
			"error":     st.Target - st.Position,
			"state":     st.State,
			"direction": st.Direction,
			"parking":   st.Parking,
			"halted":    st.Halted,
		},
	}
}

// samples flattens a status update. Axes that are not fitted are skipped.
func samples(status spid.Status) []sample {
	var out []sample
	for _, a := range rotator.Axes {
		if st := status.Axis(a); st.Fitted {
			out = append(out, axisSample(a, st))
		}
	}
	return append(out, sample{
		measurement: "spid.controller",
		fields: map[string]interface{}{
			"position_known": status.PositionKnown,
			"flush_pending":  status.FlushPending,
			"parked":         status.Parked,
		},
	})
}

func logData(writeApi api.WriteApi, url string) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected to %s", url)
	for {
		var status spid.Status
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		now := time.Now()
		for _, s := range samples(status) {
			writeApi.WritePoint(influxdb2.NewPoint(s.measurement, s.tags, s.fields, now))
		}
	}
}
