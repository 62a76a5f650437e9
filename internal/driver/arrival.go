package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

// 上报中使用的虚拟机器人和位置
const (
	syntheticRobotCode    = "robot_1"
	syntheticLocationCode = "locationCode_1"
	taskStatusSucceeded   = "WCS_SUCCEEDED"
)

// TaskReader 读取待处理的搬运任务
type TaskReader interface {
	PendingTransportTasks(ctx context.Context, limit int) ([]types.TransportTask, error)
}

// ArrivalWES 容器到站驱动用到的 WES 能力
type ArrivalWES interface {
	StationViewer
	CommandExecutor
}

type arrivalRequest struct {
	WorkLocationCode string             `json:"workLocationCode"`
	WorkStationID    types.StationID    `json:"workStationId"`
	ContainerDetails []arrivedContainer `json:"containerDetails"`
}

type arrivedContainer struct {
	ContainerCode string `json:"containerCode"`
	Face          string `json:"face"`
	RobotCode     string `json:"robotCode"`
	LocationCode  string `json:"locationCode"`
}

type taskStatusReport struct {
	TaskCode      string `json:"taskCode"`
	ContainerCode string `json:"containerCode"`
	TaskStatus    string `json:"taskStatus"`
	RobotCode     string `json:"robotCode"`
	LocationCode  string `json:"locationCode"`
}

// errPrecondition 出库任务的目标工作站不满足到站条件
var errPrecondition = errors.New("arrival precondition not met")

// ArrivalDriver 模拟机器人把容器送到工作站
// 出库任务先上报到站再上报完成，其他任务只上报完成
type ArrivalDriver struct {
	tasks     TaskReader
	wes       ArrivalWES
	batchSize int
	logger    *slog.Logger
}

// NewArrivalDriver 创建容器到站驱动
func NewArrivalDriver(tasks TaskReader, client ArrivalWES, batchSize int, logger *slog.Logger) *ArrivalDriver {
	return &ArrivalDriver{
		tasks:     tasks,
		wes:       client,
		batchSize: batchSize,
		logger:    logger.With("component", "arrival-driver"),
	}
}

// Tick 处理一批 NEW 状态的搬运任务
func (d *ArrivalDriver) Tick(ctx context.Context) error {
	tasks, err := d.tasks.PendingTransportTasks(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("读取搬运任务失败: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	// 本次 tick 已经送达容器的工作站视为已占用
	arrived := make(map[types.StationID]bool)
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := d.logger.With("task_code", task.TaskCode, "container_code", task.ContainerCode, "kind", task.Kind)

		if task.Kind == types.TaskOutbound {
			req, err := d.planArrival(ctx, task, arrived)
			if err != nil {
				logger.Info("跳过到站上报", "reason", err)
				continue
			}
			if res := d.wes.Execute(ctx, wes.APIContainerArrive, req); !res.OK {
				logger.Warn("到站上报失败，本次 tick 停止处理", "station_id", req.WorkStationID, "error", res.Err)
				return nil
			}
			arrived[req.WorkStationID] = true
			logger.Info("容器已到站", "station_id", req.WorkStationID, "work_location", req.WorkLocationCode)
		}

		report := taskStatusReport{
			TaskCode:      task.TaskCode,
			ContainerCode: task.ContainerCode,
			TaskStatus:    taskStatusSucceeded,
			RobotCode:     syntheticRobotCode,
			LocationCode:  syntheticLocationCode,
		}
		if res := d.wes.Execute(ctx, wes.APIContainerTaskStatusReport, report); !res.OK {
			logger.Warn("任务状态上报失败", "error", res.Err)
		}
	}
	return nil
}

// planArrival 检查目标工作站并组装到站请求
func (d *ArrivalDriver) planArrival(ctx context.Context, task types.TransportTask, arrived map[types.StationID]bool) (*arrivalRequest, error) {
	if task.DestinationsErr != nil {
		return nil, fmt.Errorf("%w: %v", errPrecondition, task.DestinationsErr)
	}
	if len(task.Destinations) == 0 {
		return nil, fmt.Errorf("%w: no destination", errPrecondition)
	}
	stationID := task.Destinations[0]

	view, err := d.wes.StationView(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPrecondition, err)
	}
	if !view.Status.Actionable() {
		return nil, fmt.Errorf("%w: station %d is %s", errPrecondition, stationID, view.Status)
	}
	if len(view.WorkLocations()) == 0 {
		return nil, fmt.Errorf("%w: station %d has no work locations", errPrecondition, stationID)
	}
	if view.Occupied() || arrived[stationID] {
		return nil, fmt.Errorf("%w: station %d still holds a container", errPrecondition, stationID)
	}

	locationCode, workLocationCode := view.ArrivalTarget()
	return &arrivalRequest{
		WorkLocationCode: workLocationCode,
		WorkStationID:    stationID,
		ContainerDetails: []arrivedContainer{{
			ContainerCode: task.ContainerCode,
			Face:          task.ContainerFace,
			RobotCode:     syntheticRobotCode,
			LocationCode:  locationCode,
		}},
	}, nil
}
