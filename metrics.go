package tftp

import "github.com/prometheus/client_golang/prometheus"

// StatisticCollector adapts the global packet statistics to a prometheus
// collector. Metrics are labelled with the transfer direction (rx/tx) and
// the packet type, with an extra "invalid" bucket for undecodable packets.
type StatisticCollector struct {
	packets *prometheus.Desc
	bytes   *prometheus.Desc
}

// NewStatisticCollector returns a collector over the process-wide receive
// and transmit statistics. Register it with a prometheus registry.
func NewStatisticCollector() *StatisticCollector {
	return &StatisticCollector{
		packets: prometheus.NewDesc(
			"tftp_packets_total",
			"Number of TFTP packets, per direction and packet type.",
			[]string{"direction", "type"}, nil,
		),
		bytes: prometheus.NewDesc(
			"tftp_packet_bytes_total",
			"Number of TFTP packet bytes, per direction and packet type.",
			[]string{"direction", "type"}, nil,
		),
	}
}

func (c *StatisticCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.packets
	descs <- c.bytes
}

func (c *StatisticCollector) Collect(metrics chan<- prometheus.Metric) {
	c.collect(metrics, "rx", ReceiveStatistic())
	c.collect(metrics, "tx", TransmitStatistic())
}

func (c *StatisticCollector) collect(metrics chan<- prometheus.Metric, direction string, stat *PacketStatistic) {
	snapshot := stat.Snapshot()
	for idx, counter := range snapshot {
		label := "invalid"
		if Opcode(idx) != Invalid {
			label = Opcode(idx).String()
		}
		metrics <- prometheus.MustNewConstMetric(
			c.packets, prometheus.CounterValue, float64(counter.Packets), direction, label)
		metrics <- prometheus.MustNewConstMetric(
			c.bytes, prometheus.CounterValue, float64(counter.Bytes), direction, label)
	}
}
