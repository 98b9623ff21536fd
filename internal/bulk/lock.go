package bulk

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked - массовый запуск для магазина уже выполняет другой процесс.
var ErrLocked = errors.New("массовый запуск для магазина уже выполняется другим процессом")

var lockNameReplacer = strings.NewReplacer("/", "_", ":", "_")

// LockPath возвращает путь файла блокировки магазина в каталоге dir.
func LockPath(dir, shop string) string {
	return filepath.Join(dir, "imgopt-"+lockNameReplacer.Replace(shop)+".lock")
}

// TryLockShop берет межпроцессную блокировку магазина без ожидания.
func TryLockShop(dir, shop string) (*flock.Flock, error) {
	lock := flock.New(LockPath(dir, shop))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, lock.Path())
	}
	return lock, nil
}
