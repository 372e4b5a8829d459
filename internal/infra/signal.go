package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SubscribeResilient — универсальный цикл для "живучей" подписки на каналы Redis.
// Обрабатывает переподключения и вызывает onReconnect для ресинхронизации состояния,
// когда соединение было потеряно (за время разрыва сигналы могли быть пропущены).
func SubscribeResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Callback для синхронизации при (пере)подключении
	onMessage func(payload string), // Callback для обработки сообщения
) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.String("chan", channel), zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}
