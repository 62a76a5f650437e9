package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"wes-simulator/internal/types"
)

// Journal 以 JSON Lines 形式追加记录模拟器下发的每一条命令
// 只用于事后审计，模拟器自身从不读取它来做决策
type Journal struct {
	file *os.File   // 日志文件句柄
	mu   sync.Mutex // 互斥锁，保证单行写入的原子性
}

// OpenJournal 创建或打开一个命令日志文件
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开命令日志失败: %w", err)
	}
	return &Journal{file: file}, nil
}

// Append 写入一条命令记录
func (j *Journal) Append(rec types.CommandRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Close 刷盘并关闭文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// ReadJournal 读取命令日志，损坏的行被忽略
func ReadJournal(path string) ([]types.CommandRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []types.CommandRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec types.CommandRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
