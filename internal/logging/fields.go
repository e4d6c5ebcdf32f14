package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供数据集/端点/格式与编排状态字段，供缓存请求日志复用。
func RequestFields(dataset, endpoint, format, state string) logrus.Fields {
	return logrus.Fields{
		"dataset":  dataset,
		"endpoint": endpoint,
		"format":   format,
		"state":    state,
	}
}
