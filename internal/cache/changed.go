// Package cache хранит последнее известное состояние аккаунтов и стаканов.
package cache

import (
	"bytes"
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// canonicalJSON сериализует map с отсортированными ключами - как encoding/json
var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Changed сравнивает старое и новое значение поля кэша структурно.
//
// Правила:
// - nil против не-nil (в обе стороны) - всегда изменение
// - иначе оба значения приводятся к канонической форме (ключи объектов
//   отсортированы) и сравниваются побайтно
//
// Канонизация делает сравнение нечувствительным к порядку ключей:
// {"a":1,"b":2} и {"b":2,"a":1} считаются одинаковыми. Это главный
// механизм экономии трафика: биржа может отдавать одни и те же данные
// с другим порядком полей, и без канонизации каждый такой ответ
// порождал бы лишний broadcast и запись в БД.
func Changed(old, new json.RawMessage) bool {
	if old == nil {
		return new != nil
	}
	if new == nil {
		return true
	}
	return !bytes.Equal(Canonical(old), Canonical(new))
}

// Canonical возвращает канонизированную (key-sorted) форму JSON значения.
// Невалидный JSON возвращается как есть - тогда сравнение выродится
// в побайтное, что безопасно.
func Canonical(raw json.RawMessage) []byte {
	var v interface{}
	if err := canonicalJSON.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := canonicalJSON.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
