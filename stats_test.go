package tftp

import "testing"

func TestPacketStatistic(t *testing.T) {
	var s PacketStatistic
	s.Packet(Data, 516)
	s.Packet(Data, 516)
	s.Packet(Ack, 4)
	s.Packet(Invalid, 3)
	s.Packet(Opcode(99), 7) // out of range lands in the invalid bucket

	if c := s.Counter(Data); c.Packets != 2 || c.Bytes != 1032 {
		t.Errorf("data bucket: %+v", c)
	}
	if c := s.Counter(Ack); c.Packets != 1 || c.Bytes != 4 {
		t.Errorf("ack bucket: %+v", c)
	}
	if c := s.Counter(Invalid); c.Packets != 2 || c.Bytes != 10 {
		t.Errorf("invalid bucket: %+v", c)
	}

	total := s.Total()
	if total.Packets != 5 || total.Bytes != 1046 {
		t.Errorf("total: %+v", total)
	}

	s.Reset()
	if total := s.Total(); total.Packets != 0 || total.Bytes != 0 {
		t.Errorf("total after reset: %+v", total)
	}
}
