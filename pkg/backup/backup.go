package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"NeighborSafe/pkg/logger"

	"go.uber.org/zap"
)

// Job 数据库定期备份任务，挂到调度器上运行
type Job struct {
	Driver string
	DSN    string
	Dir    string
}

func NewJob(driver, dsn, dir string) *Job {
	return &Job{Driver: driver, DSN: dsn, Dir: dir}
}

// Run 执行一次备份
func (j *Job) Run(ctx context.Context) {
	if err := j.execute(); err != nil {
		logger.Warn("backup failed", zap.Error(err))
		return
	}
	logger.Info("backup completed")
}

func (j *Job) execute() error {
	stamp := time.Now().Format("20060102_150405")
	switch j.Driver {
	case "", "sqlite":
		dst := filepath.Join(j.Dir, fmt.Sprintf("backup_%s.db", stamp))
		return backupSQLite(j.DSN, dst)
	case "mysql":
		dst := filepath.Join(j.Dir, fmt.Sprintf("backup_%s.sql", stamp))
		return backupMySQL(j.DSN, dst)
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", j.Driver)
	}
}

func ensureDir(dst string) error {
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, os.ModePerm)
	}
	return nil
}

// backupSQLite 文件级拷贝
func backupSQLite(src, dst string) error {
	if err := ensureDir(dst); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	return nil
}

// backupMySQL mysqldump 导出
func backupMySQL(dsn, dst string) error {
	if err := ensureDir(dst); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command("mysqldump", dsn)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mysqldump: %w", err)
	}
	return nil
}
