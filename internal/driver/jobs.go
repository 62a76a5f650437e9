package driver

import (
	"wes-simulator/internal/config"
	"wes-simulator/internal/engine"
)

// 任务名与开关配置键一致
const (
	JobContainerArrived    = "container_arrived"
	JobCreateInboundOrder  = "create_inbound_order"
	JobCreateOutboundOrder = "create_outbound_order"
	JobInboundAcceptance   = "inbound_acceptance"
	JobCompleteAcceptOrder = "complete_accept_order"
	JobPicking             = "picking"
)

// Set 全部驱动
type Set struct {
	Arrival    *ArrivalDriver
	Acceptance *AcceptanceDriver
	Creation   *CreationDriver
	Picking    *PickingDriver
}

// Jobs 把驱动按各自周期和开关组装成调度任务，nil 驱动不注册
func (s Set) Jobs(sc config.ScheduleConfig) []engine.Job {
	var jobs []engine.Job
	if s.Arrival != nil {
		jobs = append(jobs, engine.Job{
			Name:     JobContainerArrived,
			Interval: config.Ms(sc.ContainerArrivedMs),
			Enabled:  func(t config.Toggles) bool { return t.ContainerArrived },
			Run:      s.Arrival.Tick,
		})
	}
	if s.Creation != nil {
		jobs = append(jobs,
			engine.Job{
				Name:     JobCreateInboundOrder,
				Interval: config.Ms(sc.CreateInboundOrderMs),
				Enabled:  func(t config.Toggles) bool { return t.CreateInboundOrder },
				Run:      s.Creation.CreateInbound,
			},
			engine.Job{
				Name:     JobCreateOutboundOrder,
				Interval: config.Ms(sc.CreateOutboundOrderMs),
				Enabled:  func(t config.Toggles) bool { return t.CreateOutboundOrder },
				Run:      s.Creation.CreateOutbound,
			})
	}
	if s.Acceptance != nil {
		jobs = append(jobs,
			engine.Job{
				Name:     JobInboundAcceptance,
				Interval: config.Ms(sc.InboundAcceptanceMs),
				Enabled:  func(t config.Toggles) bool { return t.InboundAcceptance },
				Run:      s.Acceptance.Accept,
			},
			engine.Job{
				Name:     JobCompleteAcceptOrder,
				Interval: config.Ms(sc.CompleteAcceptOrderMs),
				Enabled:  func(t config.Toggles) bool { return t.CompleteAcceptOrder },
				Run:      s.Acceptance.Complete,
			})
	}
	if s.Picking != nil {
		jobs = append(jobs, engine.Job{
			Name:     JobPicking,
			Interval: config.Ms(sc.PickingMs),
			Enabled:  func(t config.Toggles) bool { return t.Picking },
			Run:      s.Picking.Tick,
		})
	}
	return jobs
}
