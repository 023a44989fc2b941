package queue

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/timmy/photovault/internal/domain"
)

type recordingAcker struct {
	acked   bool
	nacked  bool
	requeue bool
	err     error
}

func (a *recordingAcker) Ack(uint64, bool) error {
	a.acked = true
	return a.err
}

func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return a.err
}

func (a *recordingAcker) Reject(uint64, bool) error { return a.err }

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.JobStatus
		jobErr      error
		redelivered bool
		wantAck     bool
		wantRequeue bool
	}{
		{name: "success", status: domain.JobStatusSuccess, wantAck: true},
		{name: "skipped", status: domain.JobStatusSkipped, wantAck: true},
		{name: "failed is dropped", status: domain.JobStatusFailed},
		{name: "error is retried once", status: domain.JobStatusFailed, jobErr: errors.New("boom"), wantRequeue: true},
		{name: "error after retry is dropped", status: domain.JobStatusFailed, jobErr: errors.New("boom"), redelivered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &recordingAcker{}
			msg := amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Redelivered: tt.redelivered}
			if err := settle(msg, tt.status, tt.jobErr); err != nil {
				t.Fatalf("settle() error = %v", err)
			}
			if acker.acked != tt.wantAck || acker.nacked == tt.wantAck {
				t.Errorf("acked = %v, nacked = %v, want ack %v", acker.acked, acker.nacked, tt.wantAck)
			}
			if acker.requeue != tt.wantRequeue {
				t.Errorf("requeue = %v, want %v", acker.requeue, tt.wantRequeue)
			}
		})
	}
}

func TestSettleReportsBrokerErrors(t *testing.T) {
	brokerErr := errors.New("channel closed")
	for _, status := range []domain.JobStatus{domain.JobStatusSuccess, domain.JobStatusFailed} {
		acker := &recordingAcker{err: brokerErr}
		err := settle(amqp.Delivery{Acknowledger: acker, DeliveryTag: 3}, status, nil)
		if !errors.Is(err, brokerErr) {
			t.Errorf("settle(%s) error = %v, want %v", status, err, brokerErr)
		}
	}
}
